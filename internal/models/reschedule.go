package models

import "time"

// RescheduleOptions lists the slots a class can move to.
type RescheduleOptions struct {
	ClassID          string      `json:"classId"`
	Candidates       []time.Time `json:"candidates"`
	NoSlotsAvailable bool        `json:"noSlotsAvailable"`
	UsesMakeupCredit bool        `json:"usesMakeupCredit"`
	RemainingQuota   int         `json:"remainingQuota"`
}

// RescheduleResult is returned after a successful reschedule.
type RescheduleResult struct {
	Original         *Class  `json:"original"`
	Rescheduled      *Class  `json:"rescheduled"`
	UsedCreditID     *string `json:"usedCreditId,omitempty"`
	UsesMakeupCredit bool    `json:"usesMakeupCredit"`
}
