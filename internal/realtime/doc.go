// Package realtime implements the realtime fan-out layer.
//
// A Registry tracks live WebSocket connections in three indices (by id, by
// user, by household). The Dispatcher fans encoded events out to registry
// snapshots, evicting dead connections as it goes. The Bridge mirrors every
// broadcast onto Redis Pub/Sub so fan-out stays correct across instances
// behind a load balancer. The Manager is the public façade composing them.
package realtime
