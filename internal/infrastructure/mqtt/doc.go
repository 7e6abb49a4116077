// Package mqtt provides southbound measurement publishing for twinprov.
//
// This package manages:
//   - Connection to the platform's MQTT broker
//   - Publishing simulated device measurements with QoS guarantees
//   - Building the IoT-Agent southbound topic for an API key and device
//
// # Architecture
//
// FIWARE IoT-Agents subscribe to one topic per provisioned device:
//
//	/<api-key>/<device-id>/attrs
//
// Messages published there are decoded using the device's attribute
// mappings and written to the Context Broker entity. twinprov publishes
// to this topic when simulating measurements against freshly provisioned
// devices, so an operator can verify the full ingestion path without
// physical hardware.
//
// # Security Considerations
//
//   - TLS is required for production brokers (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.MeasurementTopic("4jggokgpepnvsb2uv4s40d59ov", "SENSOR-1")
//	err = client.Publish(topic, []byte(`{"f":42,"t":21.5}`), byte(cfg.MQTT.QoS))
package mqtt
