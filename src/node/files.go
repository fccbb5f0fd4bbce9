package node

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/storagegrid/gridnode/src/common"
)

// Files in the data directory.
const (
	IntroducerFURLFile = "introducer.furl"
	VDriveFURLFile     = "vdrive.furl"
	ControlFURLFile    = "control.furl"
	HotlineFile        = "suicide_prevention_hotline"
	PublicRootFURLFile = "public_root.furl"
)

// Files is the configuration a node reads from its data directory, resolved
// once at startup.
type Files struct {
	BaseDir string

	// IntroducerFURL locates the introducer.
	IntroducerFURL string

	// VDriveFURL is the FURL of the vdrive server, empty if there is none.
	VDriveFURL string

	// HotlinePath is the path of the hotline file, empty if it did not exist
	// at startup.
	HotlinePath string
}

// ReadFiles reads the node's configuration files in basedir. A missing or
// empty introducer.furl is a ConfigMissing error.
func ReadFiles(basedir string) (*Files, error) {
	files := &Files{BaseDir: basedir}

	introducer, err := readFile(basedir, IntroducerFURLFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.NewGridErr(IntroducerFURLFile, common.ConfigMissing, "file not found")
		}
		return nil, common.WrapGridErr(IntroducerFURLFile, common.ConfigMissing, err)
	}
	if introducer == "" {
		return nil, common.NewGridErr(IntroducerFURLFile, common.ConfigMissing, "file is empty")
	}
	files.IntroducerFURL = introducer

	vdrive, err := readFile(basedir, VDriveFURLFile)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	files.VDriveFURL = vdrive

	hotline := filepath.Join(basedir, HotlineFile)
	if _, err := os.Stat(hotline); err == nil {
		files.HotlinePath = hotline
	}

	return files, nil
}

func readFile(basedir string, name string) (string, error) {
	buf, err := ioutil.ReadFile(filepath.Join(basedir, name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf)), nil
}
