package model

// RawLog is a log record as returned by the filter API.
// Position fields are pointers so a missing field is distinguishable from zero.
type RawLog struct {
	Address          string  `json:"address"`
	BlockNumber      *uint64 `json:"block_number"`
	Timestamp        *uint64 `json:"timestamp"`
	LogIndex         *uint64 `json:"log_index"`
	TransactionHash  string  `json:"transaction_hash"`
	TransactionIndex *uint64 `json:"transaction_index"`
	BlockHash        *string `json:"block_hash,omitempty"`
	Topic0           *string `json:"topic_0,omitempty"`
	Topic1           *string `json:"topic_1,omitempty"`
	Topic2           *string `json:"topic_2,omitempty"`
	Topic3           *string `json:"topic_3,omitempty"`
	Data             string  `json:"data"`
}

// Topics returns the indexed topics present, contiguous from topic_0.
func (l RawLog) Topics() []string {
	topics := make([]string, 0, 4)
	for _, topic := range []*string{l.Topic0, l.Topic1, l.Topic2, l.Topic3} {
		if topic == nil {
			break
		}
		topics = append(topics, *topic)
	}
	return topics
}

// SetTopics fills topic_0..topic_3 from a slice. Extra topics are ignored.
func (l *RawLog) SetTopics(topics []string) {
	slots := []**string{&l.Topic0, &l.Topic1, &l.Topic2, &l.Topic3}
	for i, slot := range slots {
		if i < len(topics) {
			topic := topics[i]
			*slot = &topic
			continue
		}
		*slot = nil
	}
}
