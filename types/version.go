package types

// Version is the canonical project version shared by all components.
const Version = "0.1.0"
