// Package loader turns plugin descriptors into runnable plugin instances.
//
// # Overview
//
// A loading strategy picks how much isolation the instance gets:
//
// Direct: the plugin is compiled into the host and registered as a factory;
// no dynamic loading happens. Reserved for trusted, compile-time-known
// plugins.
//
// Dynamic: the artifact is a Lua script loaded at runtime into the host
// process with the full script standard library.
//
// Isolated: dynamic, plus a private interpreter state with only safe
// libraries opened, so plugins cannot collide over globals or reach os/io.
//
// Sandboxed: isolated, plus a sandbox reservation; module requires route
// through the sandbox policy and the manager runs Execute through the
// sandbox watchdog.
//
// # Entry-point resolution
//
// After the artifact is loaded the loader must find exactly one conforming
// entry point. Zero candidates fail with a NoEntryPoint error; more than one
// without a disambiguating entry_point hint in the descriptor fails with
// AmbiguousEntryPoint. The loader never guesses.
//
// # Caching
//
// Successful loads are cached by name@version in an LRU; repeated loads
// return the cached instance unless force-reload is requested. Unload drops
// the entry and closes loader-owned resources (interpreter states, sandbox
// reservations).
//
// # Related Packages
//
//   - pkg/plugin: the contract and the direct-strategy factory registry
//   - pkg/sandbox: policy enforcement for the sandboxed strategy
package loader
