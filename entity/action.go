package entity

import "time"

type Action struct {
	ID                uint       `json:"id" gorm:"primaryKey"`
	OperationID       uint       `json:"operation_id" gorm:"not null;index"`
	Slug              string     `json:"slug" gorm:"size:80;not null"`
	Name              string     `json:"name" gorm:"not null"`
	StartedTime       *time.Time `json:"started_time"`
	BeforeState       string     `json:"before_state" gorm:"type:text"`
	AfterState        string     `json:"after_state" gorm:"type:text"`
	EquivalentCommand string     `json:"equivalent_command" gorm:"type:text"`
	Result            *bool      `json:"result"`
	Message           string     `json:"message,omitempty" gorm:"type:text"`
	UserRecoverable   bool       `json:"user_recoverable" gorm:"not null;default:false"`
}

func (a *Action) HasStarted() bool {
	return a.StartedTime != nil
}

func (a *Action) Succeeded() bool {
	return a.Result != nil && *a.Result
}

func (a *Action) Failed() bool {
	return a.Result != nil && !*a.Result
}

func (a *Action) AppendMessage(text string) {
	if a.Message != "" {
		a.Message += "\n"
	}
	a.Message += text
}

func (a *Action) SetResult(ok bool) {
	a.Result = &ok
}
