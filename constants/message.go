package constants

// ContentPartTypeText is the only content part kept when a provider
// answers with multi-part content; other part types are dropped.
const ContentPartTypeText = "text"
