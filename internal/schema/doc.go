// Package schema parses descriptor file headers into typed attribute schemas.
//
// A CSV descriptor starts with a header describing each column:
//
//	entityID<Text>, entityType<Text>, t:temperature<Number>, f:fillingLevel<Number>, areaServed<Text>
//
// Each attribute cell follows the grammar
//
//	[object_id:]attribute_name<Type>
//
// where the optional object_id is the short measurement key a device protocol
// uses on the southbound (e.g. "t", "f") and Type is one of the recognised
// NGSI types. The annotation may also arrive as a second header row holding
// only "<Type>" cells; both layouts produce the same schema.
//
// The parsed Schema is immutable: it is built once per file and every data
// row is interpreted against it. Formula cells ("${...}") are validated here
// syntactically but never evaluated — evaluation belongs to the IoT-Agent at
// measurement ingestion time.
package schema
