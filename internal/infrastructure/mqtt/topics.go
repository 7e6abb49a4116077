package mqtt

// MeasurementTopic returns the IoT-Agent southbound topic for a device.
//
// Agents subscribe to /<api-key>/<device-id>/attrs for every device in
// the service group identified by the API key. The leading slash is part
// of the convention, not a mistake.
//
// Example:
//
//	MeasurementTopic("4jggokgpepnvsb2uv4s40d59ov", "SENSOR-1")
//	// "/4jggokgpepnvsb2uv4s40d59ov/SENSOR-1/attrs"
func MeasurementTopic(apiKey, deviceID string) string {
	return "/" + apiKey + "/" + deviceID + "/attrs"
}
