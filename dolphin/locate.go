package dolphin

import (
	"errors"
	"fmt"
	"path"

	"github.com/spf13/afero"
)

// ErrMissingData is returned when no directory holding both GC and Wii was found.
var ErrMissingData = errors.New("dolphin zip missing GC/Wii data")

// Limits bound the layout search inside an extracted archive.
type Limits struct {
	MaxDepth int
	MaxDirs  int
}

// DefaultLimits match the deepest layouts seen from the Android app.
var DefaultLimits = Limits{MaxDepth: 12, MaxDirs: 10000}

// Locate finds the directory under root that contains sibling GC and Wii folders.
// root itself is checked first, then its subdirectories breadth first.
func Locate(fs afero.Fs, root string, limits Limits) (string, error) {
	type node struct {
		dir   string
		depth int
	}

	queue := []node{{dir: root}}
	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		visited++
		if visited > limits.MaxDirs {
			break
		}
		if hasData(fs, n.dir) {
			return n.dir, nil
		}
		if n.depth >= limits.MaxDepth {
			continue
		}

		infos, err := afero.ReadDir(fs, n.dir)
		if err != nil {
			continue
		}
		for _, info := range infos {
			if info.IsDir() {
				queue = append(queue, node{dir: path.Join(n.dir, info.Name()), depth: n.depth + 1})
			}
		}
	}
	return "", fmt.Errorf("%w under %s", ErrMissingData, root)
}

func hasData(fs afero.Fs, dir string) bool {
	gc, _ := afero.IsDir(fs, path.Join(dir, "GC"))
	if !gc {
		return false
	}
	wii, _ := afero.IsDir(fs, path.Join(dir, "Wii"))
	return wii
}
