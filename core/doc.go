// Package core contains the canonical push registration domain: device and
// channel validation, request descriptors, response classification, and the
// completion dispatch runtime. Lower-level adapters must depend on this
// package; core must not depend on transport-specific adapters.
package core
