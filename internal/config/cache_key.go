package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// ExamTreeKey returns the cache key for an exam's hydrated tree
func (r *CacheKeyStruct) ExamTreeKey(examID int64) string {
	return fmt.Sprintf("exam:%d:tree", examID)
}

// ExamEventsChannel returns the Redis PubSub channel carrying an exam's change events
func (r *CacheKeyStruct) ExamEventsChannel(examID int64) string {
	return fmt.Sprintf("exam:%d:events", examID)
}

// LoginAttemptsKey returns the key counting failed logins for an email
func (r *CacheKeyStruct) LoginAttemptsKey(email string) string {
	return fmt.Sprintf("login:attempts:%s", email)
}

var CacheKey = NewCacheKeyStruct()
