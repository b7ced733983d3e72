// Package event holds what resistord pushes into the engine: a decoded
// CloudEvent together with the topic, partition and offset it was read from.
//
// Sinks never look at the CloudEvent directly. BlobSink and the document
// sinks call Record.Row and write that flat shape, so every backend stores
// the same columns.
//
// When a producer leaves the CloudEvent time empty, Record.EventTime falls
// back to the Kafka timestamp; object paths are dated from it.
package event
