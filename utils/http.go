// utils/http.go
package utils

import (
	"net/http"
	"time"
)

var HTTPClient = &http.Client{
	Timeout: 60 * time.Second, // evidence archival fetches can be large
}
