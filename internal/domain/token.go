package domain

import "time"

// TokenPair - access/refresh токены агрегатора. Одна пара на процесс.
type TokenPair struct {
	Access         string
	Refresh        string
	AccessExpires  time.Time
	RefreshExpires time.Time
}

func (p TokenPair) IsZero() bool {
	return p.Access == ""
}

// RefreshUsable - можно ли еще обменять refresh токен на новый access
func (p TokenPair) RefreshUsable(now time.Time) bool {
	if p.Refresh == "" {
		return false
	}
	return p.RefreshExpires.IsZero() || now.Before(p.RefreshExpires)
}
