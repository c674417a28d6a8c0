// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-redis/redis/v8"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/henriheimann/stm32-hal-rfm95/lorawan"
)

func testConfig() Config {
	c := Default()
	c.RxFrameCounter = 0x0102
	c.TxFrameCounter = 0xFFFE
	c.RX1Delay = 5
	c.Channels[8] = lorawan.Channel{0xD9, 0x38, 0x66}
	c.ChannelMask = 0x01FF
	return c
}

func TestConfigLayout(t *testing.T) {
	Convey("Given a config record", t, func() {
		c := testConfig()

		Convey("When marshaling it", func() {
			b, err := c.MarshalBinary()
			So(err, ShouldBeNil)

			Convey("Then it has the fixed layout", func() {
				So(len(b), ShouldEqual, 56)
				So(b[:6], ShouldResemble, []byte{0xAB, 0x02, 0x01, 0xFE, 0xFF, 5})
				So(b[6:9], ShouldResemble, []byte{0xD9, 0x06, 0x66})
				So(b[6+3*8:9+3*8], ShouldResemble, []byte{0xD9, 0x38, 0x66})
				So(b[54:], ShouldResemble, []byte{0xFF, 0x01})
			})

			Convey("Then unmarshaling yields the same record", func() {
				var c2 Config
				So(c2.UnmarshalBinary(b), ShouldBeNil)
				So(c2, ShouldResemble, c)
				So(c2.Valid(), ShouldBeTrue)
				So(c2.Plan().Enabled(), ShouldHaveLength, 9)
			})
		})

		Convey("When unmarshaling a truncated record", func() {
			var c2 Config
			err := c2.UnmarshalBinary(make([]byte, 55))

			Convey("Then a size error is returned", func() {
				So(err, ShouldWrap, ErrSize)
			})
		})

		Convey("When the magic is wrong", func() {
			c.Magic = 0xAC
			Convey("Then the record is not valid", func() {
				So(c.Valid(), ShouldBeFalse)
			})
		})
	})
}

func testStore(s Store) {
	Convey("When loading before anything was saved", func() {
		c, err := s.Load()
		Convey("Then nothing is returned", func() {
			So(err, ShouldBeNil)
			So(c, ShouldBeNil)
		})
	})

	Convey("When saving a record", func() {
		c := testConfig()
		So(s.Save(&c), ShouldBeNil)

		Convey("Then loading returns the same record", func() {
			c2, err := s.Load()
			So(err, ShouldBeNil)
			So(*c2, ShouldResemble, c)
		})

		Convey("Then saving again replaces it", func() {
			c.TxFrameCounter++
			So(s.Save(&c), ShouldBeNil)
			c2, err := s.Load()
			So(err, ShouldBeNil)
			So(c2.TxFrameCounter, ShouldEqual, 0xFFFF)
		})
	})
}

func TestFileStore(t *testing.T) {
	Convey("Given a file store in an empty directory", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "session.bin")
		testStore(NewFileStore(path))

		Convey("When the file holds garbage", func() {
			So(os.WriteFile(path, []byte("garbage"), 0644), ShouldBeNil)
			_, err := NewFileStore(path).Load()
			Convey("Then a size error is returned", func() {
				So(err, ShouldWrap, ErrSize)
			})
		})

		Convey("When the directory does not exist", func() {
			s := NewFileStore(filepath.Join(dir, "missing", "session.bin"))
			c := Default()
			Convey("Then saving fails", func() {
				So(s.Save(&c), ShouldNotBeNil)
			})
		})
	})
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	Convey("Given a clean Redis database", t, func() {
		opt, err := redis.ParseURL(url)
		So(err, ShouldBeNil)
		client := redis.NewClient(opt)
		So(client.FlushDB(context.Background()).Err(), ShouldBeNil)

		s := NewRedisStore(client, lorawan.DevAddr{1, 2, 3, 4})
		So(s.Key(), ShouldEqual, "rfm95:config:01020304")
		testStore(s)
	})
}
