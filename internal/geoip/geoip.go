// 包 geoip：根据客户端地址选择地图初始中心
package geoip

import (
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"github.com/paulmach/orb"

	"city-atlas/internal/logger"
)

// *geoip2.Reader 中用到的部分
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// 文档注释：将客户端 IP 解析为指定国家内的地图中心
// 约束：零值与 nil *Locator 不解析任何地址
type Locator struct {
	db      cityReader
	country string
}

// 加载 MaxMind City 数据库；路径为空时返回不解析任何地址的 Locator
func Open(path, country string) (*Locator, error) {
	if path == "" {
		return &Locator{}, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	if country == "" {
		country = "RU"
	}
	logger.L().Info("geoip_open", "path", path, "country", country)
	return &Locator{db: db, country: strings.ToUpper(country)}, nil
}

// ip 解析到配置国家内时返回其城市坐标
func (l *Locator) Center(ip string) (orb.Point, bool) {
	if l == nil || l.db == nil || ip == "" {
		return orb.Point{}, false
	}
	addr := net.ParseIP(ip)
	if addr == nil {
		return orb.Point{}, false
	}
	rec, err := l.db.City(addr)
	if err != nil {
		logger.L().Debug("geoip_lookup_error", "ip", ip, "err", err)
		return orb.Point{}, false
	}
	if !strings.EqualFold(rec.Country.IsoCode, l.country) {
		return orb.Point{}, false
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return orb.Point{}, false
	}
	logger.L().Debug("geoip_center", "ip", ip, "city", rec.City.Names["ru"])
	return orb.Point{rec.Location.Longitude, rec.Location.Latitude}, true
}

func (l *Locator) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
