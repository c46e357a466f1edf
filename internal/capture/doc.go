// Package capture holds the shared types, interfaces and error taxonomy of
// the card capture engine. Renderers, stores, the reconciler and workers all
// speak in these terms so they can be swapped and faked independently.
package capture
