package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
}

// QuestRecord is one persisted quest as shown by the status command.
type QuestRecord struct {
	Account     string     `json:"account"`
	QuestID     string     `json:"quest_id"`
	Title       string     `json:"title,omitempty"`
	Category    string     `json:"category,omitempty"`
	NextRunTime *time.Time `json:"next_run_time,omitempty"`
	Ready       bool       `json:"ready"`
}

// CounterRecord is one persisted daily counter as shown by the status command.
type CounterRecord struct {
	Account    string    `json:"account"`
	Category   string    `json:"category"`
	Count      int       `json:"count"`
	LastTxTime time.Time `json:"last_tx_time"`
}

type AccountState struct {
	Account  string          `json:"account"`
	Quests   []QuestRecord   `json:"quests"`
	Counters []CounterRecord `json:"counters"`
}
