package linkmap

// Loader supplies the raw bytes of a map file. The returned slice is owned by
// the caller.
type Loader interface {
	Load() ([]byte, error)
}

// Load reads the map file through loader and parses it.
func Load(loader Loader) (*Map, error) {
	data, err := loader.Load()
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

type FileLoader struct {
	Path string
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: path}
}
