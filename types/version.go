package types

// Version is the canonical project version.
// The CLI, the report format, and the journal record schema share this
// version; bump it in lockstep.
const Version = "0.4.0"
