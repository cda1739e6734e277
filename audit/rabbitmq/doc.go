// Package rabbitmq publishes goIdentity audit events to a RabbitMQ queue.
//
// Events are JSON encoded and sent through the default exchange with the
// queue name as routing key. Pair the sink with the engine's async
// dispatcher (Config.Audit.Enabled) so a slow broker never blocks
// authentication.
package rabbitmq
