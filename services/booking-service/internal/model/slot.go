package model

import "time"

type Slot struct {
	Start time.Time
	End   time.Time
}
