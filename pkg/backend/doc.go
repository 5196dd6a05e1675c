// Package backend discovers and drives the backends that apply intents.
//
// A backend is an external program speaking the capability negotiation
// protocol (pkg/protocol) over newline-framed JSON stdio. Two transports
// reach them: local executables (exec) and WASI modules run in-process
// under wazero (wasm).
//
// Discover probes every configured candidate concurrently: a handshake
// checks liveness and protocol compatibility, a describe call collects
// the capability declaration. Candidates that crash, time out, answer with
// an incompatible protocol major, or return malformed responses are
// excluded with a recorded reason; exclusions are reported, never fatal.
//
// The resulting Registry is read-only: it serves the resolver as the
// backend directory (engine.Directory) and the executor as the apply
// transport (engine.Applier). Each apply call runs in a fresh backend
// session so a crashed backend never poisons the next step.
package backend
