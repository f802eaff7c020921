package util

import "time"

func StringPtr(s string) *string {
	return &s
}

func IntPtr(n int) *int {
	return &n
}

func Float64Ptr(f float64) *float64 {
	return &f
}

func TimePtr(t time.Time) *time.Time {
	return &t
}
