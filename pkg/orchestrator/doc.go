// Package orchestrator wires the resource loader, form state, renderers, the
// inference invoker and the verdict presenter into the two interactions a
// client needs: rendering the form and submitting it.
package orchestrator
