package common

// RedactedValue replaces secrets wherever a value has to be shown.
const RedactedValue = "[redacted]"
