// Package flush wraps a segment's serialized bytes with a selectable
// compression codec and an integrity checksum before handoff to colder
// storage.
//
// This is deliberately a layer above segment.Segment.Serialize, not part
// of it: the wire format in segment/gorilla is a fixed cross-process
// contract, while the envelope here is local policy a caller can change
// without touching that contract.
package flush
