// Package cli provides the building blocks of the autoppa command:
// kubectl-like configuration contexts, output formatting, logging setup and
// a terminal transcript renderer.
//
// Configuration lives in ~/.autoppa/config.yaml:
//
//	current_context: local
//	contexts:
//	  local:
//	    name: local
//	    model: openai/gpt-5-mini
//	    root: ~/src/autoppa
//	    max_iterations: 5
//	    artifacts:
//	      kind: s3
//	      s3:
//	        bucket: autoppa-runs
package cli
