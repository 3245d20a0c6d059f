package domain

// LinkCard is the preview metadata of a linked page.
type LinkCard struct {
	URL         string
	Title       string
	Description string
	ImageURL    string
	Thumb       []byte
	// Preview is a fixed-size crop of Thumb kept with the archive record.
	Preview []byte
}

// Rendered is a post with its attachments resolved, ready for the platform clients.
type Rendered struct {
	Content Content
	Card    *LinkCard
	Image   []byte
}
