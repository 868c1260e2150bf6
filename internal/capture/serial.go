package capture

import (
	"bufio"
	"errors"
	"io"
	"strings"

	serial "github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/imu_calibration/internal/imu"
)

// OpenSerial opens the logger's serial port in 8N1 mode.
func OpenSerial(port string, baud int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	return serial.Open(opts)
}

// LineSource reads $CLIMU sentences from a byte stream, skipping anything
// that does not parse (boot banners, partial lines, other sentences).
type LineSource struct {
	r       *bufio.Reader
	Skipped int
}

func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: bufio.NewReader(r)}
}

// Next returns the next valid sample, or io.EOF once the stream ends.
func (s *LineSource) Next() (imu.Sample, error) {
	for {
		line, err := s.r.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" && strings.HasPrefix(line, "$") {
			sample, perr := ParseLine(line)
			if perr == nil {
				return sample, nil
			}
			s.Skipped++
			log.Debugf("capture: skipping line %q: %v", line, perr)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return imu.Sample{}, io.EOF
			}
			return imu.Sample{}, err
		}
	}
}
