// Short-lived key/value cache with a fixed TTL.
//
// Includes an interface and implementations using redis and in-process memory.
//
// The engine uses it to remember which notes have already been through the pipeline. A note is claimed before processing starts, so when the stream and a backlog scan deliver the same note at the same time only one of them judges it.
package cachestore
