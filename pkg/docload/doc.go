// Package docload reads intent documents into the generic document tree.
//
// A document names a schema version and lists intents; the text format it
// is written in is the author's choice. The loader is picked by file
// extension:
//
//   - .cue          CUE, compiled and required to be fully concrete
//   - .yaml, .yml   YAML
//   - .star         a Starlark program whose document() function computes
//     the document, for generated inputs
//
// Loaders parse and nothing more. The result is a document.Value tree
// handed to the schema registry, which owns every semantic check: a
// syntactically valid document with a bogus schema version loads fine
// here and is rejected there.
//
// Starlark programs run sandboxed: no filesystem or network access, print
// output dropped, and a hard execution timeout. The program's top level
// runs first, then document() is called with no arguments:
//
//	packages = ["nginx", "curl"]
//
//	def intent(name):
//	    return {"kind": "package", "target": name, "parameters": {"state": "present"}}
//
//	def document():
//	    return {
//	        "schema_version": "1.2",
//	        "intents": [intent(p) for p in packages],
//	    }
package docload
