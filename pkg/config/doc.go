// Package config loads the enact tool configuration.
//
// The tool configuration is one YAML file naming the backends to probe,
// the resolution and execution policy, the policy gate inputs, the
// optional run history archive, and telemetry. It is distinct from intent
// documents: documents say what the host should look like, the tool
// configuration says how enact goes about it.
//
// Load layers the file over Default and validates the result, so a
// minimal file states only what differs from the defaults:
//
//	engine:
//	  failure_mode: halt
//	  step_timeout: 60s
//	  priority: [apk]
//
//	backends:
//	  - name: apk
//	    type: exec
//	    path: /usr/libexec/enact/enact-backend-apk
//	  - name: pkgsim
//	    type: wasm
//	    path: /usr/libexec/enact/pkgsim.wasm
//
//	policy:
//	  enabled: true
//	  paths: [/etc/enact/policy]
//
//	history:
//	  enabled: true
//	  path: /var/lib/enact/history.db
//
// Unknown keys are rejected so a typo cannot silently disable a setting.
// Field constraints live as validator tags on the configuration types;
// cross-field rules (unique backend names, priority referring only to
// configured backends) are checked by Validate.
//
// The package also converts configuration into the option structs the
// engine layers take: BackendSpecs builds the discovery candidates,
// ResolveOptions and ExecuteOptions feed the resolver and executor, and
// ToTelemetryConfig maps the telemetry section.
package config
