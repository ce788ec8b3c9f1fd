package server

import "time"

var timeNow = time.Now
