package items

import "errors"

// ErrNotFound is returned when an item id has no metadata record.
var ErrNotFound = errors.New("item not found")

// ErrSourceMissing is returned when metadata exists but the image file is gone.
var ErrSourceMissing = errors.New("item source file missing")
