package dialer

import (
	"time"
)

type Config struct {
	DialTimeout time.Duration
}
