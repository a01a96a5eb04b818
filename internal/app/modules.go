package app

import (
	"github.com/vk/vgprep/internal/registry"
	"github.com/vk/vgprep/modules/download"
	"github.com/vk/vgprep/modules/filesystem"
	"github.com/vk/vgprep/modules/print"
	"github.com/vk/vgprep/modules/unzip"
)

// coreModules is the definitive list of all step modules that are compiled
// into the vgprep binary.
var coreModules = []registry.Module{
	&download.Module{},
	&unzip.Module{},
	&filesystem.Module{},
	&print.Module{},
}
