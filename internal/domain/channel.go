package domain

// ChannelName names a room. Case-sensitive, arbitrary string.
type ChannelName string
