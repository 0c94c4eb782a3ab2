package rediskey

import "fmt"

// RewardEventPrefix namespaces the dedup markers for reward webhook
// deliveries.
const RewardEventPrefix = "reward:event"

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRewardEventKey returns "reward:event:{eventID}", the marker set
// once a webhook event has been credited.
func BuildRewardEventKey(eventID string) string {
	return NamespaceKey(RewardEventPrefix, eventID)
}
