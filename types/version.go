package types

// Version is the canonical project version.
// The CLI, the extension command contract, and the trigger protocol all
// share this version under the lockstep versioning policy.
const Version = "0.3.0"
