package messaging

import "github.com/segmentio/kafka-go"

// HeaderCarrier exposes Kafka message headers to OTel propagators.
type HeaderCarrier struct {
	headers *[]kafka.Header
}

func NewHeaderCarrier(msg *kafka.Message) HeaderCarrier {
	return HeaderCarrier{headers: &msg.Headers}
}

func (c HeaderCarrier) Get(key string) string {
	if h := c.find(key); h != nil {
		return string(h.Value)
	}
	return ""
}

func (c HeaderCarrier) Set(key, value string) {
	if h := c.find(key); h != nil {
		h.Value = []byte(value)
		return
	}
	*c.headers = append(*c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c HeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c HeaderCarrier) find(key string) *kafka.Header {
	headers := *c.headers
	for i := range headers {
		if headers[i].Key == key {
			return &headers[i]
		}
	}
	return nil
}

func header(msg kafka.Message, key string) string {
	return NewHeaderCarrier(&msg).Get(key)
}
