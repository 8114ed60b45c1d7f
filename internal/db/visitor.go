package db

import "time"

const (
	// UnknownDevice 是无法识别设备信息时的默认值。
	UnknownDevice = "unknown"
)

// Visitor 记录由指纹派生的访客身份，同一身份只会有一行。
type Visitor struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	VisitorID    string    `gorm:"size:64;uniqueIndex" json:"visitorId"`
	IsNewVisitor bool      `json:"isNewVisitor"`
	FirstVisitAt time.Time `json:"firstVisitAt"`
	LastVisitAt  time.Time `json:"lastVisitAt"`
	TotalVisits  uint64    `gorm:"default:0" json:"totalVisits"`

	// 可选的设备与地理信息
	UserAgent  string `gorm:"size:512" json:"userAgent,omitempty"`
	IPAddress  string `gorm:"size:64" json:"-"`
	DeviceType string `gorm:"size:16;default:unknown" json:"deviceType"`
	Browser    string `gorm:"size:32;default:unknown" json:"browser"`
	OS         string `gorm:"size:32;default:unknown" json:"os"`
	Country    string `gorm:"size:64" json:"country,omitempty"`
	Region     string `gorm:"size:64" json:"region,omitempty"`
	City       string `gorm:"size:64" json:"city,omitempty"`

	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName 指定自定义表名。
func (Visitor) TableName() string {
	return "visitors"
}

// ApplyDefaults 为缺失的设备字段填充默认值。
func (v *Visitor) ApplyDefaults() {
	if v.DeviceType == "" {
		v.DeviceType = UnknownDevice
	}
	if v.Browser == "" {
		v.Browser = UnknownDevice
	}
	if v.OS == "" {
		v.OS = UnknownDevice
	}
}

// BlogView 记录访客对单篇文章的累计浏览，(visitor_id, blog_slug) 唯一。
type BlogView struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	VisitorID     string    `gorm:"size:64;uniqueIndex:idx_blog_view_visitor_slug" json:"visitorId"`
	BlogSlug      string    `gorm:"size:191;uniqueIndex:idx_blog_view_visitor_slug;index" json:"blogSlug"`
	BlogTitle     string    `gorm:"size:255" json:"blogTitle"`
	ViewCount     uint64    `gorm:"default:0" json:"viewCount"`
	FirstViewedAt time.Time `json:"firstViewedAt"`
	LastViewedAt  time.Time `json:"lastViewedAt"`
	CreatedAt     time.Time `json:"-"`
	UpdatedAt     time.Time `json:"-"`
}

// TableName 指定自定义表名。
func (BlogView) TableName() string {
	return "blog_views"
}
