package archive

import "github.com/DHARPA-Project/kiara-sub003/kerr"

// ErrReadOnly is returned by Put on an archive mounted read-only.
var ErrReadOnly = kerr.New(kerr.KindArchiveReadOnly, "archive is read-only")
