package models

// SourceKind identifies which origin a source's videos come from
type SourceKind string

const (
	SourceKindRemoteChannel  SourceKind = "remote-channel"
	SourceKindRemotePlaylist SourceKind = "remote-playlist"
	SourceKindLocalTree      SourceKind = "local-tree"
	SourceKindDerived        SourceKind = "derived"
)

// IsRemote reports whether videos of this kind come from the remote metadata API
func (k SourceKind) IsRemote() bool {
	return k == SourceKindRemoteChannel || k == SourceKindRemotePlaylist
}

// Valid reports whether k is one of the known kinds
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindRemoteChannel, SourceKindRemotePlaylist, SourceKindLocalTree, SourceKindDerived:
		return true
	}
	return false
}

// DerivedList names a curated list built from persisted user actions
type DerivedList string

const (
	DerivedListDownloads DerivedList = "downloads"
	DerivedListFavorites DerivedList = "favorites"
	DerivedListWishlist  DerivedList = "wishlist"
)

// Valid reports whether l is one of the known lists
func (l DerivedList) Valid() bool {
	switch l {
	case DerivedListDownloads, DerivedListFavorites, DerivedListWishlist:
		return true
	}
	return false
}

// WishlistStatus represents the parental decision on a wishlist entry
type WishlistStatus string

const (
	WishlistPending  WishlistStatus = "pending"
	WishlistApproved WishlistStatus = "approved"
	WishlistDenied   WishlistStatus = "denied"
)

// Valid reports whether s is a known status; empty means pending
func (s WishlistStatus) Valid() bool {
	switch s {
	case "", WishlistPending, WishlistApproved, WishlistDenied:
		return true
	}
	return false
}

// ThumbnailKind distinguishes cached thumbnail namespaces
type ThumbnailKind string

const (
	ThumbnailKindLocal  ThumbnailKind = "local"
	ThumbnailKindRemote ThumbnailKind = "remote"
)
