package cleanup

import "fmt"

func NewQueue(queueType, redisAddress string) (Queue, error) {
	switch queueType {
	case "redis":
		return NewRedisQueue(redisAddress)
	case "memory", "":
		return NewMemoryQueue(), nil
	default:
		return nil, fmt.Errorf("unsupported cleanup queue type: %s", queueType)
	}
}
