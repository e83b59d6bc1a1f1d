package config

// MediaOrphanQueue is the Redis sorted set of media URLs that no question
// references anymore, scored by the unix time they were orphaned.
const MediaOrphanQueue = "media:orphans"
