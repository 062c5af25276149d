// Package rag implements the two pipelines at the heart of the assistant.
//
// Ingestion runs each document through Received → Chunked → Embedded →
// Stored → Complete, with a terminal Failed state reachable from any
// step. A document that fails never aborts its batch; the caller gets a
// per-document report.
//
// Query is stateless per call: embed the question, search the store,
// pack the nearest chunks into a bounded context, generate. When nothing
// is retrieved the assistant degrades to ungrounded generation instead
// of failing.
package rag
