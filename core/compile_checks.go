package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ error        = (*ApplicationError)(nil)
	_ ClassifyFunc = (*ErrorNormalizer)(nil).Classify

	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}
	_ RawConfigLoader = StaticRawConfigLoader{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
