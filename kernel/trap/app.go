package trap

import (
	"bytes"
	"sv39os/kernel"
)

// imageMagic starts every application image.
var imageMagic = []byte("\x7fAPP")

// maxNameLen bounds the application name stored in an image header.
const maxNameLen = 64

var (
	errBadImage = &kernel.Error{Module: "trap", Message: "not an application image"}
	errBadName  = &kernel.Error{Module: "trap", Message: "invalid application name"}
)

// Program is the body of an application. Its return value becomes the exit
// code of the application.
type Program func(sys *Syscalls) int

// App is an application that can be linked into the kernel.
type App struct {
	Name string
	Main Program

	// Payload is appended to the image after the header.
	Payload []byte
}

// Image returns the bytes that are loaded into the application's slot. The
// image starts with a header naming the application; the trampoline uses
// the header of the loaded image to find the code to run.
func (a App) Image() ([]byte, *kernel.Error) {
	if a.Name == "" || len(a.Name) >= maxNameLen || bytes.IndexByte([]byte(a.Name), 0) != -1 {
		return nil, errBadName
	}

	img := make([]byte, 0, len(imageMagic)+len(a.Name)+1+len(a.Payload))
	img = append(img, imageMagic...)
	img = append(img, a.Name...)
	img = append(img, 0)
	return append(img, a.Payload...), nil
}

// imageName extracts the application name from the start of an image.
func imageName(hdr []byte) (string, *kernel.Error) {
	if !bytes.HasPrefix(hdr, imageMagic) {
		return "", errBadImage
	}

	name := hdr[len(imageMagic):]
	end := bytes.IndexByte(name, 0)
	if end <= 0 {
		return "", errBadImage
	}
	return string(name[:end]), nil
}
