package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// EventHeaders builds the canonical metadata headers carried on every event message.
func EventHeaders(eventID, eventType, contentType string) []kafka.Header {
	headers := []kafka.Header{
		{Key: "event_id", Value: []byte(eventID)},
		{Key: "event_type", Value: []byte(eventType)},
	}
	if contentType != "" {
		headers = append(headers, kafka.Header{Key: "content_type", Value: []byte(contentType)})
	}
	return headers
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
