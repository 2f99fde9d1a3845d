package routes

import (
	"strconv"
	"time"

	"github.com/fastdiary/fastdiary/config"
	"github.com/fastdiary/fastdiary/services"
)

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func servicesInput(day string) services.EntryInput {
	d, err := time.Parse(config.DateLayout, day)
	if err != nil {
		panic(err)
	}
	return services.EntryInput{When: d}
}
